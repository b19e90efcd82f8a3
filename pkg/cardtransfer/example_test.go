// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer_test

import (
	"context"
	"fmt"
	"os"

	"github.com/cardctl/cardctl/pkg/cardtransfer"
)

func ExampleTransfer() {
	query := cardtransfer.Query{
		Name:       "income-classifier",
		Repository: "risk-team",
		Version:    "latest",
	}

	cfg := cardtransfer.DefaultSettings()
	cfg.RegistryURI = os.Getenv("CARDCTL_REGISTRY_URI")
	cfg.Token = os.Getenv("CARDCTL_TOKEN")

	// Progress callback
	progress := func(e cardtransfer.ProgressEvent) {
		switch e.Event {
		case "resolve_done":
			fmt.Printf("Resolved: %s\n", e.Message)
		case "file_done":
			fmt.Printf("Downloaded: %s\n", e.Path)
		case "done":
			fmt.Println("Complete!")
		}
	}

	ctx := context.Background()
	card, err := cardtransfer.Transfer(ctx, query, cardtransfer.Modifiers{}, "./models", cfg, nil, progress)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println(cardtransfer.DestinationDir("./models", card))
}

func ExampleTransfer_withOnnx() {
	// Require the ONNX variant and also take the preprocessor when the
	// card carries one.
	mods := cardtransfer.Modifiers{Onnx: true, Preprocessor: true}

	cfg := cardtransfer.DefaultSettings()
	cfg.RegistryURI = "https://registry.example.com"
	cfg.Timeout = "5m"

	_, err := cardtransfer.Transfer(context.Background(), cardtransfer.Query{UID: "8f2c1b"}, mods, "./models", cfg, nil, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
}

func ExampleFetchMetadata() {
	cfg := cardtransfer.DefaultSettings()
	cfg.RegistryURI = "https://registry.example.com"

	card, err := cardtransfer.FetchMetadata(context.Background(), cardtransfer.Query{UID: "8f2c1b"}, "./models", cfg, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Wrote card.json for %s@%s\n", card.Name, card.Version)
}
