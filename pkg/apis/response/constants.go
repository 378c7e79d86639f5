package response

type ErrCode int

const (
	_                       ErrCode = 10000 + iota
	ErrCodeMalformedJSON            // 10001
	ErrCodeRequestBody              // 10002
	ErrCodeResourceExists           // 10003
	ErrCodeResourceNotFound         // 10004
	ErrCodeNotConnected             // 10005
	ErrCodeConnect                  // 10006
	ErrCodeDevice                   // 10007
	ErrCodeScanInProgress           // 10008
	ErrCodeAlreadyRunning           // 10009
	ErrCodeInvalidRange             // 10010
	ErrCodeCountLimit               // 10011
	ErrCodeInvalidValue             // 10012
	ErrCodeInvalidSettings          // 10013
	ErrCodeStorage                  // 10014
	ErrCodeHostStats                // 10015
	ErrCodeUnsupportedMedia         // 10016
)

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end, and append comment of number
// Meanwhile, the corresponding error message SHOULD be appended in response.errors
// The order MUST be consistent between them
