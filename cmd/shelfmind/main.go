package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"shelfmind/internal/domain"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "error [%s]: %v\n", domain.Kind(err), err)
			if hint := repairHint(err); hint != "" {
				fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
			}
		}
		os.Exit(1)
	}
}

func repairHint(err error) string {
	var corrupt *domain.CorruptError
	if errors.As(err, &corrupt) {
		return corrupt.RepairHint
	}
	return ""
}
