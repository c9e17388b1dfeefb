//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests with the race detector.
func (Test) Unit() error {
	if _, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the loader against the sample site in ./public.
func (Test) Smoke() error {
	mg.Deps(Build.Binary)
	if _, err := executeCmd("bin/assetloader", withArgs("--root", "public", "--list"), withStream()); err != nil {
		return err
	}
	return nil
}
