package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// secretBytes es el largo de cada secreto HS256 generado.
const secretBytes = 32

// Imprime un par de secretos listos para JWT_ACCESS_SECRET y JWT_REFRESH_SECRET.
func main() {
	for _, name := range []string{"JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET"} {
		b := make([]byte, secretBytes)
		if _, err := rand.Read(b); err != nil {
			fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s=%s\n", name, hex.EncodeToString(b))
	}
}
