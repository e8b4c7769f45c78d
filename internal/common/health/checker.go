package health

import (
	"errors"
	"strings"
)

// Checker reports whether one dependency of the service is usable.
type Checker interface {
	Check() error
}

// CheckerFunc adapts a plain function to the Checker interface.
type CheckerFunc func() error

func (f CheckerFunc) Check() error {
	return f()
}

// MultiChecker aggregates several checkers; it fails if any of them fail.
type MultiChecker struct {
	checkers []Checker
}

func NewMultiChecker(checkers ...Checker) *MultiChecker {
	return &MultiChecker{checkers: checkers}
}

func (mc *MultiChecker) Check() error {
	errorStrings := []string{}
	for _, checker := range mc.checkers {
		if err := checker.Check(); err != nil {
			errorStrings = append(errorStrings, err.Error())
		}
	}
	if len(errorStrings) == 0 {
		return nil
	}
	return errors.New(strings.Join(errorStrings, "\n"))
}

func (mc *MultiChecker) Add(checker Checker) {
	mc.checkers = append(mc.checkers, checker)
}
