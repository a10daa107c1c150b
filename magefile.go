//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binary = "virtualtourist"

// Default target when running mage without arguments
var Default = Build

// Build compiles the virtualtourist binary. go-sqlite3 needs cgo.
func Build() error {
	env := map[string]string{"CGO_ENABLED": "1"}
	return sh.RunWithV(env, "go", "build", "-o", binary, "./cmd/virtualtourist")
}

// Test runs all unit tests
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Race runs all unit tests with the race detector
func Race() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Vet runs go vet
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Check runs vet and the race tests
func Check() {
	mg.SerialDeps(Vet, Race)
}

// Install installs the binary into GOPATH/bin
func Install() error {
	mg.Deps(Test)
	return sh.RunV("go", "install", "./cmd/virtualtourist")
}

// Clean removes build artifacts
func Clean() error {
	fmt.Println("Cleaning...")
	if err := sh.Rm(binary); err != nil {
		return err
	}
	return os.RemoveAll("dist")
}
