package errs

import (
	"fmt"
	"syscall"

	"github.com/pkg/errors"
)

type PollErr struct {
	msg  string
	code int64
	err  error
}

// Error output format:
// [code] message ( => cause )
// the part in parentheses is optional.
func (pe *PollErr) Error() string {
	details := fmt.Sprintf("[%d] %s", pe.code, pe.msg)
	if pe.err != nil {
		details += fmt.Sprintf(" => %s", pe.err)
	}

	return details
}

func (pe *PollErr) Code() int64 {
	return pe.code
}

func (pe *PollErr) Unwrap() error {
	return pe.err
}

// Cause lets errors.Cause from pkg/errors see through the wrapper.
func (pe *PollErr) Cause() error {
	return pe.err
}

func (pe *PollErr) WithErr(err error) *PollErr {
	pe.err = err
	return pe
}

func GetCode(err error) int64 {
	var pe *PollErr
	if errors.As(err, &pe) {
		return pe.code
	}
	return UnknownErrCode
}

// NativeCode returns the OS error number carried somewhere in err's chain.
func NativeCode(err error) (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}

// IsIOErr reports whether err is one of the descriptor I/O kinds.
func IsIOErr(err error) bool {
	code := GetCode(err)
	return code >= ioErrCodeBegin && code < ioErrCodeEnd
}

const (
	UnknownErrCode          = 0
	InvalidParamErrCode     = 100001
	NotSupportedErrCode     = 100002
	OpenFileErrCode         = 100003
	FileNoPermissionErrCode = 100005
	FileStatErrCode         = 100006
	MkdirErrCode            = 100007
	ReadConfigErrCode       = 100008

	// multiplexer
	ResourceErrCode              = 200001
	RegistrationErrCode          = 200002
	DuplicateRegistrationErrCode = 200003
	NotRegisteredErrCode         = 200004
	WaitErrCode                  = 200005
	PollerClosedErrCode          = 200006

	// descriptor io, keep inside [ioErrCodeBegin, ioErrCodeEnd)
	ioErrCodeBegin      = 300000
	CreateSocketErrCode = 300001
	CloseSocketErrCode  = 300002
	SetSockOptErrCode   = 300003
	BindErrCode         = 300004
	ListenErrCode       = 300005
	AcceptErrCode       = 300006
	ConnectErrCode      = 300007
	ReadSocketErrCode   = 300008
	WriteSocketErrCode  = 300009
	SockNameErrCode     = 300010
	StartupErrCode      = 300011
	ioErrCodeEnd        = 400000
)

func NewInvalidParamErr() *PollErr {
	return &PollErr{msg: "invalid params", code: InvalidParamErrCode}
}

func NewNotSupportedErr() *PollErr {
	return &PollErr{msg: "not supported on this platform", code: NotSupportedErrCode}
}

func NewOpenFileErr() *PollErr {
	return &PollErr{msg: "open file failed", code: OpenFileErrCode}
}

func NewFileNoPermissionErr() *PollErr {
	return &PollErr{msg: "file no permission", code: FileNoPermissionErrCode}
}

func NewFileStatErr() *PollErr {
	return &PollErr{msg: "file stat failed", code: FileStatErrCode}
}

func NewMkdirErr() *PollErr {
	return &PollErr{msg: "mkdir failed", code: MkdirErrCode}
}

func NewReadConfigErr() *PollErr {
	return &PollErr{msg: "read config failed", code: ReadConfigErrCode}
}

func NewResourceErr() *PollErr {
	return &PollErr{msg: "create multiplexer failed", code: ResourceErrCode}
}

func NewRegistrationErr() *PollErr {
	return &PollErr{msg: "register descriptor failed", code: RegistrationErrCode}
}

func NewDuplicateRegistrationErr() *PollErr {
	return &PollErr{msg: "descriptor already registered", code: DuplicateRegistrationErrCode}
}

func NewNotRegisteredErr() *PollErr {
	return &PollErr{msg: "descriptor not registered", code: NotRegisteredErrCode}
}

func NewWaitErr() *PollErr {
	return &PollErr{msg: "wait for events failed", code: WaitErrCode}
}

func NewPollerClosedErr() *PollErr {
	return &PollErr{msg: "multiplexer already closed", code: PollerClosedErrCode}
}

func NewCreateSocketErr() *PollErr {
	return &PollErr{msg: "create socket failed", code: CreateSocketErrCode}
}

func NewCloseSocketErr() *PollErr {
	return &PollErr{msg: "close socket failed", code: CloseSocketErrCode}
}

func NewSetSockOptErr() *PollErr {
	return &PollErr{msg: "set socket option failed", code: SetSockOptErrCode}
}

func NewBindErr() *PollErr {
	return &PollErr{msg: "bind failed", code: BindErrCode}
}

func NewListenErr() *PollErr {
	return &PollErr{msg: "listen failed", code: ListenErrCode}
}

func NewAcceptErr() *PollErr {
	return &PollErr{msg: "accept failed", code: AcceptErrCode}
}

func NewConnectErr() *PollErr {
	return &PollErr{msg: "connect failed", code: ConnectErrCode}
}

func NewReadSocketErr() *PollErr {
	return &PollErr{msg: "read socket failed", code: ReadSocketErrCode}
}

func NewWriteSocketErr() *PollErr {
	return &PollErr{msg: "write socket failed", code: WriteSocketErrCode}
}

func NewSockNameErr() *PollErr {
	return &PollErr{msg: "get socket name failed", code: SockNameErrCode}
}

func NewStartupErr() *PollErr {
	return &PollErr{msg: "network stack startup failed", code: StartupErrCode}
}
