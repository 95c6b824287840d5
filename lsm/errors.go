package lsm

import "github.com/tidalstore/lsmtree/internal/errs"

// Code re-exports the handle API's error taxonomy (§7) so callers never
// need to import internal/errs directly.
type Code = errs.Code

const (
	OK         = errs.OK
	ErrGeneric = errs.ErrGeneric
	Busy       = errs.Busy
	NoMem      = errs.NoMem
	ReadOnly   = errs.ReadOnly
	IOErr      = errs.IOErr
	Corrupt    = errs.Corrupt
	Full       = errs.Full
	CantOpen   = errs.CantOpen
	Protocol   = errs.Protocol
	Misuse     = errs.Misuse
	Mismatch   = errs.Mismatch
	IOErrNoEnt = errs.IOErrNoEnt
)

// CodeOf extracts the Code carried by err, ErrGeneric if err did not
// originate in this module.
func CodeOf(err error) Code { return errs.CodeOf(err) }

func misuseErr(msg string) error { return errs.New(errs.Misuse, msg) }

func busyErr(msg string) error { return errs.New(errs.Busy, msg) }
