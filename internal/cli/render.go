// Package cli contains utilities for CLI operations.
package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/cdmlab/go_cdm/pkg/cdm"
	"github.com/cdmlab/go_cdm/pkg/pssh"
)

// RenderContentKeys writes content-role keys one per line as kid:key hex
// pairs, the form decryption tooling consumes directly. Other roles only
// appear in the verbose rendering.
func RenderContentKeys(w io.Writer, keys []cdm.ContentKey) {
	for _, k := range keys {
		if k.Role != cdm.RoleContent {
			continue
		}
		fmt.Fprintln(w, k.String())
	}
}

// RenderContentKeysVerbose includes the key role and UUID form of each key id.
func RenderContentKeysVerbose(w io.Writer, keys []cdm.ContentKey) {
	for _, k := range keys {
		fmt.Fprintf(w, "%-18s %s %s\n", k.Role, k.UUID(), hex.EncodeToString(k.Key))
	}
}

// RenderBox writes a human-readable description of a protection box.
func RenderBox(w io.Writer, box *pssh.Box) {
	fmt.Fprintf(w, "System:    %s\n", box.System())
	fmt.Fprintf(w, "Version:   %d\n", box.Version)
	fmt.Fprintf(w, "Data size: %d bytes\n", len(box.Data))

	switch box.System() {
	case pssh.SystemWidevine:
		kids, err := box.WidevineKeyIDs()
		if err != nil {
			fmt.Fprintf(w, "Key IDs:   (unreadable: %v)\n", err)

			return
		}
		renderKeyIDs(w, kids)
	case pssh.SystemPlayReady:
		header, err := box.PlayReadyHeader()
		if err != nil {
			fmt.Fprintf(w, "Header:    (unreadable: %v)\n", err)

			return
		}
		fmt.Fprintf(w, "WRM:       version %s\n", header.Version)
		if header.LAURL != "" {
			fmt.Fprintf(w, "LA URL:    %s\n", header.LAURL)
		}
		kids := make([][16]byte, 0, len(header.KeyIDs))
		for _, k := range header.KeyIDs {
			kids = append(kids, k.ID)
		}
		renderKeyIDs(w, kids)
	default:
		renderKeyIDs(w, box.KeyIDs)
	}
}

func renderKeyIDs(w io.Writer, kids [][16]byte) {
	if len(kids) == 0 {
		fmt.Fprintln(w, "Key IDs:   (none)")

		return
	}
	rendered := make([]string, 0, len(kids))
	for _, kid := range kids {
		rendered = append(rendered, hex.EncodeToString(kid[:]))
	}
	fmt.Fprintf(w, "Key IDs:   %s\n", strings.Join(rendered, ", "))
}
