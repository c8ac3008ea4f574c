package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/tariel-x/lookbook/internal/models"

	"github.com/go-playground/validator/v10"
)

const (
	MinYear   = 2026
	MaxYear   = 2050
	MaxImages = 5
)

// ProductInput is the admin-supplied shape of a product. Tags encode the
// catalog rules; Validate reports the first violation in field order.
type ProductInput struct {
	Season       models.Season `json:"season" validate:"required,oneof=spring summer autumn winter"`
	Year         int           `json:"year" validate:"required,min=2026,max=2050"`
	Title        string        `json:"title" validate:"required,min=3,max=255"`
	Description  string        `json:"description" validate:"required,min=10"`
	Images       []string      `json:"images" validate:"required,min=1,max=5,dive,required,url"`
	Sizes        []string      `json:"sizes" validate:"required,min=1,dive,oneof=S M L XL"`
	PurchaseLink *string       `json:"purchase_link" validate:"omitempty,url"`
	Colors       []string      `json:"colors" validate:"required,min=1,dive,required"`
	VideoURL     *string       `json:"video_url" validate:"omitempty,url"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize trims whitespace, turns blank optional links into nil and
// collapses duplicate sizes keeping their first position.
func (in ProductInput) Normalize() ProductInput {
	out := in
	out.Season = models.Season(strings.ToLower(strings.TrimSpace(string(in.Season))))
	out.Title = strings.TrimSpace(in.Title)
	out.Description = strings.TrimSpace(in.Description)
	out.Images = trimAll(in.Images)
	out.Colors = trimAll(in.Colors)
	out.PurchaseLink = blankToNil(in.PurchaseLink)
	out.VideoURL = blankToNil(in.VideoURL)

	if in.Sizes != nil {
		seen := make(map[string]struct{}, len(in.Sizes))
		sizes := make([]string, 0, len(in.Sizes))
		for _, s := range in.Sizes {
			s = strings.ToUpper(strings.TrimSpace(s))
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			sizes = append(sizes, s)
		}
		out.Sizes = sizes
	}
	return out
}

// Validate normalizes the input and checks it. The returned error is always
// a *ValidationError.
func (in ProductInput) Validate() (ProductInput, error) {
	norm := in.Normalize()
	if err := validate.Struct(norm); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return ProductInput{}, toValidationError(fieldErrs[0])
		}
		return ProductInput{}, &ValidationError{Message: err.Error()}
	}
	return norm, nil
}

func toValidationError(fe validator.FieldError) *ValidationError {
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "oneof":
		msg = fmt.Sprintf("must be one of [%s]", fe.Param())
	case "url":
		msg = "must be a valid URL"
	case "min":
		if fe.Kind() == reflect.Slice {
			msg = fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		} else if fe.Kind() == reflect.String {
			msg = fmt.Sprintf("must be at least %s characters", fe.Param())
		} else {
			msg = fmt.Sprintf("must be at least %s", fe.Param())
		}
	case "max":
		if fe.Kind() == reflect.Slice {
			msg = fmt.Sprintf("must contain at most %s item(s)", fe.Param())
		} else if fe.Kind() == reflect.String {
			msg = fmt.Sprintf("must be at most %s characters", fe.Param())
		} else {
			msg = fmt.Sprintf("must be at most %s", fe.Param())
		}
	default:
		msg = fmt.Sprintf("failed %q validation", fe.Tag())
	}
	return &ValidationError{Field: field, Rule: fe.Tag(), Message: msg}
}

// apply copies validated input onto p, leaving identity and timestamps alone.
func (in ProductInput) apply(p *models.Product) {
	p.Season = in.Season
	p.Year = in.Year
	p.Title = in.Title
	p.Description = in.Description
	p.Images = models.StringList(append([]string(nil), in.Images...))
	p.Sizes = models.StringList(append([]string(nil), in.Sizes...))
	p.PurchaseLink = in.PurchaseLink
	p.Colors = models.StringList(append([]string(nil), in.Colors...))
	p.VideoURL = in.VideoURL
}

func trimAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
