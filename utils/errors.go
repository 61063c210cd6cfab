package utils

import "errors"

var (
	ErrEmptyURL            = errors.New("destination URL cannot be empty")
	ErrInvalidURL          = errors.New("invalid URL format")
	ErrInvalidScheme       = errors.New("URL scheme must be http or https")
	ErrEmptyHost           = errors.New("URL host cannot be empty")
	ErrLocalhostNotAllowed = errors.New("localhost URLs are not allowed")
	ErrPrivateIPNotAllowed = errors.New("private IP addresses are not allowed")

	ErrSlugTooShort      = errors.New("slug is too short")
	ErrSlugTooLong       = errors.New("slug is too long")
	ErrSlugInvalidStart  = errors.New("slug must start with a letter or digit")
	ErrSlugInvalidEnd    = errors.New("slug must end with a letter or digit")
	ErrSlugInvalidFormat = errors.New("slug may only contain letters, digits, hyphens and underscores")
	ErrSlugPureNumber    = errors.New("slug cannot be a pure number")
	ErrSlugReserved      = errors.New("slug is a reserved word")
)
