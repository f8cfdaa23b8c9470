package inspect

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/0bArc/Vault/internal/ir"
)

// Format selects a report renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json or yaml)", s)
	}
}

// Write renders r to w in the given format.
func Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatYAML:
		return WriteYAML(w, r)
	case FormatText, "":
		return WriteText(w, r)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML writes r as a YAML document.
func WriteYAML(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// WriteText writes the decrypted view of r. Values are printed the way
// they are written in DSL source.
func WriteText(w io.Writer, r *Report) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "# Vault Archive (decrypted view)")
	fmt.Fprintf(bw, "# format %d\n", r.Version)
	if len(r.Dependencies) > 0 {
		fmt.Fprintf(bw, "depends %s\n", strings.Join(r.Dependencies, " "))
	}
	if r.Trailer != "" {
		fmt.Fprintf(bw, "trailer %s\n", r.Trailer)
	}
	if r.Integrity == IntegrityFailed {
		fmt.Fprintln(bw, "# archive integrity: failed")
	}
	fmt.Fprintln(bw)

	for _, v := range r.Vaults {
		writeVaultText(bw, &v)
		fmt.Fprintln(bw, "---")
	}
	return bw.Flush()
}

func writeVaultText(w io.Writer, v *VaultReport) {
	keyword := "vault"
	if v.Optional {
		keyword = "vault?"
	}
	header := keyword + " " + v.Name
	if v.Secure {
		header += " secure"
	}
	if v.MAC != "" {
		header += " (mac=" + v.MAC + ")"
	}
	if v.Integrity == IntegrityFailed {
		header += " [integrity: failed]"
	}
	fmt.Fprintln(w, header)

	if v.Error != "" {
		fmt.Fprintf(w, "  # unreadable: %s\n", v.Error)
		return
	}
	for _, n := range v.Notes {
		fmt.Fprintf(w, "  note %s\n", strconv.Quote(n))
	}
	for _, reg := range v.Registries {
		fmt.Fprintf(w, "  registry %s\n", reg.Name)
		for _, k := range reg.Keys {
			fmt.Fprintf(w, "    %s = %s\n", strconv.Quote(k.Key), formatValue(k))
		}
	}
}

func formatValue(k KeyReport) string {
	if k.raw != nil {
		return ir.Format(k.raw)
	}
	// Reports decoded from JSON carry only the native value.
	v, err := ir.FromNative(k.Value)
	if err != nil {
		return fmt.Sprint(k.Value)
	}
	return ir.Format(v)
}
