package fieldmap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaymcgreal/datatransformer/app/config"
)

func contact(t *testing.T) *config.LinkageCfg {
	t.Helper()
	cfg, err := config.LoadProfile("contact")
	require.NoError(t, err)
	return cfg
}

func TestResolve_Contact(t *testing.T) {
	header := []string{"Id", "Name", "FirstName", "Email", "Phone", "MobilePhone", "Company_Name__c"}

	m, err := Resolve(contact(t), header)
	require.NoError(t, err)

	assert.Equal(t, "Name", m.Header("name"))
	assert.Equal(t, "Email", m.Header("email"))
	assert.Equal(t, "Phone", m.Header("phone"))
	assert.Equal(t, "Company_Name__c", m.Header("company_name__c"))
	assert.Equal(t, "exact", m.Bindings[0].How)
	assert.Equal(t, "", m.Header("website"))
}

func TestResolve_KeywordFallback(t *testing.T) {
	cfg, err := config.Parse([]byte(`
duplicate_fields:
  - {name: name, weight: 40}
  - {name: email, weight: 30}
  - {name: phone, weight: 30}
`))
	require.NoError(t, err)
	header := []string{"Id", "Account Name", "Work Email", "Phone Number"}

	m, err := Resolve(cfg, header)
	require.NoError(t, err)
	assert.Equal(t, "Account Name", m.Header("name"))
	assert.Equal(t, "Work Email", m.Header("email"))
	assert.Equal(t, "Phone Number", m.Header("phone"))
	assert.Equal(t, "keyword", m.Bindings[0].How)
}

func TestResolve_Ambiguous(t *testing.T) {
	header := []string{"Id", "FirstName", "LastName", "Email", "Phone", "Company_Name__c"}

	_, err := Resolve(contact(t), header)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousColumn))
	assert.Contains(t, err.Error(), `"FirstName", "LastName"`)
}

func TestResolve_NotFound(t *testing.T) {
	header := []string{"Id", "Name", "Emial", "Phone", "Company_Name__c"}

	_, err := Resolve(contact(t), header)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))
	assert.Contains(t, err.Error(), `did you mean "Emial"`)
}

func TestResolve_ExplicitAndOptional(t *testing.T) {
	cfg, err := config.Parse([]byte(`
duplicate_fields:
  - {name: name, column: LastName, weight: 70}
  - {name: website, weight: 30, optional: true}
`))
	require.NoError(t, err)

	m, err := Resolve(cfg, []string{"Id", "FirstName", "LastName"})
	require.NoError(t, err)
	assert.Equal(t, "LastName", m.Header("name"))
	assert.Equal(t, "explicit", m.Bindings[0].How)
	assert.Equal(t, "", m.Header("website"))

	_, err = Resolve(cfg, []string{"Id", "Surname"})
	assert.True(t, errors.Is(err, ErrColumnNotFound))
}

func TestResolve_RepeatedHeaderIsNotAmbiguous(t *testing.T) {
	cfg, err := config.Parse([]byte(`
duplicate_fields:
  - {name: name, weight: 100}
`))
	require.NoError(t, err)

	m, err := Resolve(cfg, []string{"Id", "Name", "Name"})
	require.NoError(t, err)
	assert.Equal(t, "Name", m.Header("name"))
}
