package calltracking

import "github.com/rotisserie/eris"

var (
	ErrInvalidRequest = eris.New("invalid phone request")
	ErrBadStatus      = eris.New("unexpected status")
	ErrInvalidJSON    = eris.New("invalid json response")
	ErrEmptyPhone     = eris.New("empty phone in response")
)
