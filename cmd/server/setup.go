package main

import (
	"context"
	"fmt"
)

func runSetup(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tenants, err := a.server.Reseeder().Reset(ctx)
	if err != nil {
		return err
	}
	for _, t := range tenants {
		fmt.Printf("%-20s %s\n", t.Name, t.APIKey)
	}
	return nil
}
