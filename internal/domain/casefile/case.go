package casefile

import (
	"database/sql"
	"strings"

	"github.com/tidwall/gjson"
)

// Case is a read-only snapshot of one ombudsman manifestation.
// The same logical value can live in several places depending on which
// ingestion generation wrote the row, so raw fields are kept as-is and
// resolved through ordered field lists.
type Case struct {
	Protocol          string
	ManifestationType string
	Department        string
	CreatedAt         sql.NullTime   // created_at, native timestamp
	LegacyCreated     sql.NullString // data_criacao, free-form text
	CompletedAt       sql.NullTime   // completed_at
	LegacyCompleted   sql.NullString // data_conclusao
	Payload           []byte         // raw jsonb document from the source system
}

// PayloadString returns the value at a gjson path inside the payload,
// trimmed, or "" when the payload is empty or the path is absent.
func (c *Case) PayloadString(path string) string {
	if len(c.Payload) == 0 || !gjson.ValidBytes(c.Payload) {
		return ""
	}
	r := gjson.GetBytes(c.Payload, path)
	if !r.Exists() || r.Type == gjson.Null {
		return ""
	}
	return strings.TrimSpace(r.String())
}

// TextField is one named place a text value may be read from.
type TextField struct {
	Name string
	Get  func(c *Case) string
}

func payloadText(path string) TextField {
	return TextField{
		Name: "payload." + path,
		Get:  func(c *Case) string { return c.PayloadString(path) },
	}
}

// ProtocolFields lists where a protocol number may be found, highest priority first.
var ProtocolFields = []TextField{
	{Name: "protocol", Get: func(c *Case) string { return strings.TrimSpace(c.Protocol) }},
	payloadText("protocolo"),
	payloadText("dados.protocolo"),
}

// DepartmentFields lists where the owning department name may be found.
var DepartmentFields = []TextField{
	{Name: "department", Get: func(c *Case) string { return strings.TrimSpace(c.Department) }},
	payloadText("dados.secretaria"),
	payloadText("secretaria"),
}

// TypeFields lists where the manifestation type may be found.
var TypeFields = []TextField{
	{Name: "manifestation_type", Get: func(c *Case) string { return strings.TrimSpace(c.ManifestationType) }},
	payloadText("dados.tipo"),
	payloadText("tipo"),
}

// FirstText returns the first non-empty value among fields and the name of
// the field it came from.
func FirstText(c *Case, fields []TextField) (value, source string) {
	for _, f := range fields {
		if v := f.Get(c); v != "" {
			return v, f.Name
		}
	}
	return "", ""
}

// ProtocolOf resolves the case protocol.
func ProtocolOf(c *Case) string {
	v, _ := FirstText(c, ProtocolFields)
	return v
}

// DepartmentOf resolves the owning department name.
func DepartmentOf(c *Case) string {
	v, _ := FirstText(c, DepartmentFields)
	return v
}

// TypeOf resolves the manifestation type text.
func TypeOf(c *Case) string {
	v, _ := FirstText(c, TypeFields)
	return v
}
