package loader

import (
	"errors"
	"fmt"
)

// Loader errors callers can branch on with errors.Is.
var (
	// ErrBusy is returned when a load or unload for the same command is in flight.
	ErrBusy = errors.New("another load or unload of this command is in progress")

	// ErrNotFound is matched by *NotFoundError.
	ErrNotFound = errors.New("command not found")

	// ErrNotCommand is returned when a module does not construct a plugin.Command.
	ErrNotCommand = errors.New("module does not export a command")

	// ErrNotHandler is returned when a module does not construct a plugin.Handler.
	ErrNotHandler = errors.New("module does not export an event handler")
)

// LoadError is a per-file command load failure.
type LoadError struct {
	File string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("Unable to load command %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NotFoundError is returned when unloading a name that is not registered.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s does not exist.", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ShutdownError is returned when a command's shutdown hook fails. The
// command stays registered: its resources may not have been released.
type ShutdownError struct {
	Name string
	Err  error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("Unable to shut down command %s: %v", e.Name, e.Err)
}

func (e *ShutdownError) Unwrap() error { return e.Err }

// BindError is a per-file event handler failure.
type BindError struct {
	File string
	Path string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("Unable to bind event %s: %v", e.File, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// guard runs fn and turns a panic inside plugin code into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
