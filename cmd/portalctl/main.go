// main.go — точка входа portalctl, CLI оператора Consult Portal.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, "Ошибка:", err)
		os.Exit(3)
	}
}

// exitError — завершение с заданным кодом без вывода сообщения.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("код завершения %d", e.code)
}
