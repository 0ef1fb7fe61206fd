package normalizers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Plumbing LLC", "acme plumbing"},
		{"  ACME   plumbing, Inc. ", "acme plumbing"},
		{"Smith & Sons Co", "smith sons"},
		{"The Company Store", "the store"},
		{"", ""},
		{"LLC", ""},
		{"Tampa-Bay", "tampa bay"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Invariance(t *testing.T) {
	inputs := []string{
		"Acme Plumbing LLC",
		"joe's HVAC & air",
		"Café Ñandú, Ltd.",
		"  spaced\tout \n name ",
		"12 Brothers Corp",
		"Παπαδόπουλος Plumbing",
		"diyarbakır tile",
		"ſpring pools",
		"STRASSE Straße",
	}
	for _, s := range inputs {
		key := Normalize(s)
		assert.Equal(t, key, Normalize(strings.ToUpper(s)), s)
		assert.Equal(t, key, Normalize(s+"  "), s)
		assert.Equal(t, key, Normalize(key), "normalize is idempotent for %q", s)
	}
	assert.Equal(t, Normalize("Acme Plumbing LLC"), Normalize("acme plumbing"))
}

func TestNormalize_CaseFolding(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"Παπαδόπουλος Plumbing", "ΠΑΠΑΔΌΠΟΥΛΟΣ PLUMBING"},
		{"diyarbakır tile", "DIYARBAKIR TILE"},
		{"ſpring pools", "Spring Pools"},
	}
	for _, tt := range tests {
		t.Run(tt.a, func(t *testing.T) {
			assert.Equal(t, Normalize(tt.a), Normalize(tt.b))
			assert.Equal(t, IdentityKey(tt.a, "Tampa"), IdentityKey(tt.b, "TAMPA"))
		})
	}
}

func TestIdentityKey(t *testing.T) {
	assert.Equal(t, "acme plumbing|tampa", IdentityKey("ACME PLUMBING", "tampa"))
	assert.Equal(t, IdentityKey("Acme Plumbing", "Tampa"), IdentityKey("acme plumbing inc", " TAMPA "))
	assert.Empty(t, IdentityKey("", "Tampa"))
	assert.Empty(t, IdentityKey("Acme", ""))
	assert.Empty(t, IdentityKey("", ""))
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"555-1111", "5551111"},
		{"(813) 555-1111", "8135551111"},
		{"+1 813 555 1111", "8135551111"},
		{"123", ""},
		{"", ""},
		{"n/a", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		platform string
		in       string
		want     string
	}{
		{PlatformInstagram, "https://www.instagram.com/AcmePlumbing/", "instagram:acmeplumbing"},
		{PlatformInstagram, "@AcmePlumbing", "instagram:acmeplumbing"},
		{PlatformInstagram, "acmeplumbing", "instagram:acmeplumbing"},
		{PlatformFacebook, "facebook.com/pages/AcmePlumbing", "facebook:acmeplumbing"},
		{PlatformFacebook, "https://facebook.com/profile.php?id=1234", "facebook:1234"},
		{PlatformLinkedIn, "https://www.linkedin.com/company/acme-plumbing", "linkedin:acme-plumbing"},
		{PlatformLinkedIn, "https://www.linkedin.com/", ""},
		{PlatformFacebook, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHandle(tt.platform, tt.in))
		})
	}
}

func TestHandles(t *testing.T) {
	assert.Equal(t,
		[]string{"facebook:acme", "linkedin:acme-co"},
		Handles("facebook.com/acme", "", "linkedin.com/company/acme-co"),
	)
	assert.Nil(t, Handles("", "", ""))
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "Acme Plumbing", ApplyChain("  acme   PLUMBING ", "collapse_whitespace", "title"))
	assert.Equal(t, "value", ApplyChain("value", "missing"))

	_, ok := Get("nphone")
	assert.True(t, ok)
}
