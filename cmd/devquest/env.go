package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// setEnvValue writes key=value into the dotenv file at path, keeping the
// other entries.
func setEnvValue(path, key, value string) error {
	values, err := godotenv.Read(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if values == nil {
		values = map[string]string{}
	}
	values[strings.TrimSpace(key)] = value
	return godotenv.Write(values, path)
}
