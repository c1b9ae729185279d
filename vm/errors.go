package vm

import "errors"

// Fatal errors. Any of these raised while dispatching an instruction halts the
// VM; Execute reports them through IO.Error.
var (
	ErrDivisionByZero            = errors.New("division by zero")
	ErrNoSuchLabel               = errors.New("no such label")
	ErrNotInstructionSegment     = errors.New("label does not point to an instructions segment")
	ErrArgStackOverflow          = errors.New("argument stack: stack overflow")
	ErrVariableStack             = errors.New("variable stack")
	ErrExecutionLimit            = errors.New("maximum execution count reached, the code probably contains an infinite loop")
	ErrNoListOpen                = errors.New("list_select may not be called if there is no list open")
	ErrInvalidStringAddress      = errors.New("failed to dereference string: invalid address")
	ErrInvalidInstructionPointer = errors.New("invalid instruction pointer")
	ErrEndOfObjectCode           = errors.New("reached end of object code but call stack was not empty")
	ErrInvalidRegister           = errors.New("invalid register")
	ErrNoSuchThread              = errors.New("no such thread")
	ErrNotLoaded                 = errors.New("no object code loaded")
)
