package response

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

type responseError struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
	Err     error   `json:"-"`
}

func (re *responseError) Error() string {
	if re == nil {
		return ""
	}
	s := `{
    "code": ` + strconv.Itoa(int(re.Code)) + `,
    "message": ` + re.Message + `
}`
	return s
}

func (re *responseError) GetCode() ErrCode {
	if re == nil {
		return 0
	}
	return re.Code
}

func (re *responseError) Unwrap() error {
	return re.Err
}

func IsResponseError(err error) bool {
	_, ok := err.(*responseError)
	return ok
}

// MultiError contains multiple errors and implements the error interface. Its
// zero value is ready to use. All its methods are goroutine safe.
type MultiError struct {
	mtx    sync.Mutex
	errors []error
}

func NewMultiError(err ...error) *MultiError {
	return &MultiError{
		errors: err,
	}
}

// Add adds an error to the MultiError.
func (e *MultiError) Add(err ...error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	e.errors = append(e.errors, err...)
}

// Len returns the number of errors added to the MultiError.
func (e *MultiError) Len() int {
	if e == nil {
		return 0
	}
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return len(e.errors)
}

// Errors returns a copy of the errors added to the MultiError.
func (e *MultiError) Errors() []error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return append(make([]error, 0, len(e.errors)), e.errors...)
}

func (e *MultiError) MarshalJSON() ([]byte, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return json.Marshal(struct {
		Errors []error `json:"errors"`
	}{
		Errors: e.errors,
	})
}

func (e *MultiError) UnmarshalJSON(bytes []byte) error {
	errs := struct {
		Errors []*responseError `json:"errors"`
	}{}
	if err := json.Unmarshal(bytes, &errs); err != nil {
		return err
	}
	for _, err := range errs.Errors {
		e.Add(err)
	}
	return nil
}

func (e *MultiError) Error() string {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	es := make([]string, 0, len(e.errors))
	for _, err := range e.errors {
		es = append(es, err.Error())
	}
	return strings.Join(es, "; ")
}

func generateError(code ErrCode, s ...interface{}) *responseError {
	return &responseError{
		Code:    code,
		Message: fmt.Sprintf(errorMessages[code], s...),
	}
}

func generateErrorWrapper(code ErrCode, err error) *responseError {
	return &responseError{
		Code:    code,
		Message: fmt.Sprintf(errorMessages[code], err),
		Err:     err,
	}
}

func ErrResourceExists(resource string) *responseError {
	return generateError(ErrCodeResourceExists, resource)
}

func ErrResourceNotFound(resource string) *responseError {
	return generateError(ErrCodeResourceNotFound, resource)
}

func ErrAlreadyRunning(task string) *responseError {
	return generateError(ErrCodeAlreadyRunning, task)
}

func ErrUnsupportedMedia(contentType string) *responseError {
	return generateError(ErrCodeUnsupportedMedia, contentType)
}

func ErrRequestBody(err error) *responseError {
	return generateErrorWrapper(ErrCodeRequestBody, err)
}

func ErrConnect(err error) *responseError {
	return generateErrorWrapper(ErrCodeConnect, err)
}

func ErrDevice(err error) *responseError {
	return generateErrorWrapper(ErrCodeDevice, err)
}

func ErrInvalidRange(err error) *responseError {
	return generateErrorWrapper(ErrCodeInvalidRange, err)
}

func ErrCountLimit(err error) *responseError {
	return generateErrorWrapper(ErrCodeCountLimit, err)
}

func ErrInvalidValue(err error) *responseError {
	return generateErrorWrapper(ErrCodeInvalidValue, err)
}

func ErrInvalidSettings(err error) *responseError {
	return generateErrorWrapper(ErrCodeInvalidSettings, err)
}

func ErrStorage(err error) *responseError {
	return generateErrorWrapper(ErrCodeStorage, err)
}

func ErrHostStats(err error) *responseError {
	return generateErrorWrapper(ErrCodeHostStats, err)
}
