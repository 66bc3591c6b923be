package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dinicsek/LovassyApp/internal/keyringctl"
)

func main() {
	if err := keyringctl.Execute(context.Background(), keyringctl.Options{}, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
