package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

//nolint:gochecknoglobals // validator caches struct metadata and is safe for concurrent use
var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// SubmitEvaluationRequest is the body accepted by the submission endpoint.
type SubmitEvaluationRequest struct {
	Category        string            `json:"category"                  validate:"required,max=64"`
	Models          []string          `json:"models,omitempty"          validate:"omitempty,max=64,dive,required,max=128"`
	EvaluationType  EvaluationType    `json:"evaluationType,omitempty"  validate:"omitempty,oneof=quality security"`
	CustomTestCases []json.RawMessage `json:"customTestCases,omitempty" validate:"omitempty,max=500"`
}

// Normalize trims inputs and applies the default evaluation type.
func (r *SubmitEvaluationRequest) Normalize() {
	r.Category = strings.TrimSpace(r.Category)
	if r.EvaluationType == "" {
		r.EvaluationType = EvaluationTypeQuality
	}
	models := make([]string, 0, len(r.Models))
	seen := make(map[string]struct{}, len(r.Models))
	for _, m := range r.Models {
		m = strings.TrimSpace(m)
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		models = append(models, m)
	}
	r.Models = models
}

// Validate validates the request fields.
func (r *SubmitEvaluationRequest) Validate() error {
	err := requestValidator().Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	msgs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldError(fe))
	}
	return errors.Join(msgs...)
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required and cannot be empty", fe.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Errorf("%s cannot exceed %s", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// CustomTestCasesJSON packs the raw test cases into a single JSON array.
func (r *SubmitEvaluationRequest) CustomTestCasesJSON() (json.RawMessage, error) {
	if len(r.CustomTestCases) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(r.CustomTestCases)
	if err != nil {
		return nil, fmt.Errorf("encode custom test cases: %w", err)
	}
	return b, nil
}

// SubmitEvaluationData describes the accepted job in the submission response.
type SubmitEvaluationData struct {
	Category       string         `json:"category"`
	EvaluationType EvaluationType `json:"evaluationType"`
	Framework      string         `json:"framework"`
	Metrics        []string       `json:"metrics"`
	Models         []string       `json:"models"`
	EstimatedTime  string         `json:"estimatedTime"`
}

// SubmitEvaluationResult is returned by the evaluation service for an accepted submission.
type SubmitEvaluationResult struct {
	EvaluationID string
	Reused       bool
	Data         SubmitEvaluationData
}
