package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/inkwell/internal/apperrors"
)

type credentialsFixture struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=6"`
	Color    string `json:"color" validate:"omitempty,iscolor"`
}

func TestStructReportsFieldsByJSONName(t *testing.T) {
	err := Struct(credentialsFixture{Username: "", Password: "abc", Color: "not-a-color"})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	message := err.Error()
	for _, fragment := range []string{"username is required", "password must be at least 6 characters", "color must be a color"} {
		if !strings.Contains(message, fragment) {
			t.Fatalf("expected %q in %q", fragment, message)
		}
	}
}

func TestStructAcceptsValidInput(t *testing.T) {
	if err := Struct(credentialsFixture{Username: "jimy", Password: "secret", Color: "#fff"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVarNamesTheValue(t *testing.T) {
	err := Var("password", "123", "min=6")
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if !strings.Contains(err.Error(), "password must be at least 6 characters") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
