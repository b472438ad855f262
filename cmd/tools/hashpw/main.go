package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/eximia-labs/backend-quotes/internal/auth"
)

// hashpw generates the argon2id hash expected in ADMIN_PASSWORD_HASH.
// Reads the password from the first argument or from stdin.
func main() {
	password := ""
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		fmt.Fprint(os.Stderr, "password: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "read password: %v\n", err)
			os.Exit(2)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		fmt.Fprintln(os.Stderr, "usage: hashpw [password]")
		os.Exit(1)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(hash)
}
