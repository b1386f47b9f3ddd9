package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

// QueryParams is the query-service request boundary.
type QueryParams struct {
	Query   string `json:"query" validate:"required,min=3,max=500"`
	Company string `json:"company,omitempty" validate:"omitempty,max=120"`
	Year    int    `json:"year,omitempty" validate:"omitempty,gte=2015,lte=2030"`
	TopK    int    `json:"top_k,omitempty" validate:"omitempty,gte=1,lte=20"`
}

// EmbedParams identifies an experience to (re)index.
type EmbedParams struct {
	ExperienceID string `json:"experience_id" validate:"required,uuid"`
}

// SimilarParams identifies an experience to find neighbours for.
type SimilarParams struct {
	ExperienceID string `json:"experience_id" validate:"required,uuid"`
	TopK         int    `json:"top_k,omitempty" validate:"omitempty,gte=1,lte=20"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func validateStruct(s any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func (params *QueryParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *EmbedParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *SimilarParams) Validate() map[string]string {
	return validateStruct(params)
}
