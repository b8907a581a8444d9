package models

// ErrorAuthenticationFailed covers missing, invalid or expired tokens and bad credentials.
type ErrorAuthenticationFailed struct {
	Message string
}

func (e *ErrorAuthenticationFailed) Error() string { return e.Message }

// ErrorPermissionDenied is returned when an authenticated caller may not perform an action.
type ErrorPermissionDenied struct {
	Message string
}

func (e *ErrorPermissionDenied) Error() string { return e.Message }

// ErrorValidation reports malformed input or an illegal state transition.
type ErrorValidation struct {
	Message string
}

func (e *ErrorValidation) Error() string { return e.Message }

type ErrorNotFound struct {
	Message string
}

func (e *ErrorNotFound) Error() string { return e.Message }

// ErrorConflict reports duplicates and repeated one-time transitions.
type ErrorConflict struct {
	Message string
}

func (e *ErrorConflict) Error() string { return e.Message }

type ErrorInternalServer struct {
	Message string
}

func (e *ErrorInternalServer) Error() string { return e.Message }

var (
	ErrInvalidCredentials = &ErrorAuthenticationFailed{Message: "invalid credentials"}
	ErrTokenExpired       = &ErrorAuthenticationFailed{Message: "session expired, login again to continue"}
	ErrTokenInvalid       = &ErrorAuthenticationFailed{Message: "authentication credentials invalid"}
	ErrTokenReplay        = &ErrorAuthenticationFailed{Message: "refresh token reuse detected"}
	ErrUserNotFound       = &ErrorAuthenticationFailed{Message: "user not found or inactive"}
	ErrTokenMissing       = &ErrorAuthenticationFailed{Message: "authentication credentials were not provided"}

	ErrPermissionDenied = &ErrorPermissionDenied{Message: "you do not have permission to perform this action"}

	ErrNotApproved       = &ErrorValidation{Message: "publication must be approved before publishing"}
	ErrPublicationHidden = &ErrorValidation{Message: "hidden publications cannot change state"}
	ErrPublishInPast     = &ErrorValidation{Message: "publish_at must not be in the past"}
	ErrPasswordMismatch  = &ErrorValidation{Message: "passwords do not match"}
	ErrPasswordReused    = &ErrorValidation{Message: "cannot use current password as a new password"}
	ErrInvalidAuthors    = &ErrorValidation{Message: "invalid or disallowed user ids"}
	ErrInvalidRole       = &ErrorValidation{Message: "unknown role"}
	ErrUnsupportedImage  = &ErrorValidation{Message: "thumbnail must be a jpg, jpeg or png image"}

	ErrPublicationNotFound = &ErrorNotFound{Message: "publication not found"}
	ErrAccountNotFound     = &ErrorNotFound{Message: "user not found"}

	ErrAlreadyApproved  = &ErrorConflict{Message: "this publication was already approved"}
	ErrAlreadyPublished = &ErrorConflict{Message: "this publication is already published"}
	ErrEmailExists      = &ErrorConflict{Message: "an account with the provided email address already exists"}
	ErrSlugExists       = &ErrorConflict{Message: "a publication with this slug already exists"}
)
