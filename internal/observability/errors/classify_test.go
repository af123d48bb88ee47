package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

type customErr struct{}

func (customErr) Error() string { return "custom" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), ClassCanceled},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), ClassDeadlineExceeded},
		{"errors.New", goerrors.New("boom"), "errors_errorstring"},
		{"wrapped pointer", fmt.Errorf("outer: %w", &exec.Error{Name: "x", Err: goerrors.New("y")}), "errors_errorstring"},
		{"custom value", fmt.Errorf("outer: %w", customErr{}), "errors_customerr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
