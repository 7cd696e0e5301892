package words

import "errors"

// ErrNoWords is returned when a source has nothing for the requested categories.
var ErrNoWords = errors.New("no words for the selected categories")
