package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsExpectedAbsence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{ErrBucketNotFound, true},
		{fmt.Errorf("list fashion-images: %w", ErrPermissionDenied), true},
		{ErrInvalidToken, true},
		{ErrNotFound, false},
		{errors.New("connection reset"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsExpectedAbsence(c.err); got != c.want {
			t.Fatalf("IsExpectedAbsence(%v)=%v, want %v", c.err, got, c.want)
		}
	}
}
