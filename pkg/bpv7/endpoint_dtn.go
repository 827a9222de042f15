// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/dtn7/cboring"
)

const (
	dtnEndpointSchemeName string = "dtn"
	dtnEndpointSchemeNo   uint64 = 1

	dtnEndpointDtnNoneSsp string = "none"
)

// DtnEndpoint describes the dtn URI scheme for EndpointIDs, as defined in the DTN Bundle Protocol's
// draft-ietf-dtn-bpbis.
type DtnEndpoint struct {
	Ssp string
}

// NewDtnEndpoint from an URI with the dtn scheme, e.g., "dtn://foo/bar" or the sentinel "dtn:none".
func NewDtnEndpoint(uri string) (e EndpointType, err error) {
	re := regexp.MustCompile(`^dtn:(.+)$`)
	matches := re.FindStringSubmatch(uri)
	if len(matches) != 2 {
		err = fmt.Errorf("uri does not match a dtn endpoint")
		return
	}

	ssp := matches[1]
	if ssp != dtnEndpointDtnNoneSsp {
		if _, parseErr := parseUri(ssp); parseErr != nil {
			err = parseErr
			return
		}
	}

	e = DtnEndpoint{ssp}
	return
}

// parseUri parses the SSP of a non-none dtn endpoint. The SSP's leading "//" makes net/url read the node name as the
// URL's host and the demux as its path.
func parseUri(ssp string) (*url.URL, error) {
	return url.Parse(ssp)
}

// DtnNone returns the "null endpoint", dtn:none.
func DtnNone() EndpointID {
	return EndpointID{DtnEndpoint{Ssp: dtnEndpointDtnNoneSsp}}
}

// SchemeName is "dtn" for DtnEndpoints.
func (e DtnEndpoint) SchemeName() string {
	return dtnEndpointSchemeName
}

// SchemeNo is 1 for DtnEndpoints.
func (e DtnEndpoint) SchemeNo() uint64 {
	return dtnEndpointSchemeNo
}

// Authority is the authority part of the Endpoint URI, e.g., "foo" for "dtn://foo/bar".
func (e DtnEndpoint) Authority() string {
	if e.Ssp == dtnEndpointDtnNoneSsp {
		return dtnEndpointDtnNoneSsp
	}

	if u, err := parseUri(e.Ssp); err == nil {
		return u.Host
	}
	return ""
}

// Path is the path part of the Endpoint URI, e.g., "/bar" for "dtn://foo/bar".
func (e DtnEndpoint) Path() string {
	if e.Ssp == dtnEndpointDtnNoneSsp {
		return "/"
	}

	if u, err := parseUri(e.Ssp); err == nil {
		return u.Path
	}
	return ""
}

// IsSingleton checks if this Endpoint represents a singleton.
//
// A dtn Endpoint is a singleton unless its demux, the path after the node name, starts with "~", which is reserved
// for groups. dtn:none is not a singleton.
func (e DtnEndpoint) IsSingleton() bool {
	if e.Ssp == dtnEndpointDtnNoneSsp {
		return false
	}
	return !strings.HasPrefix(e.Path(), "/~")
}

// CheckValid returns an array of errors for incorrect data.
func (e DtnEndpoint) CheckValid() error {
	if e.Ssp == dtnEndpointDtnNoneSsp {
		return nil
	}
	_, err := parseUri(e.Ssp)
	return err
}

func (e DtnEndpoint) String() string {
	return fmt.Sprintf("%s:%s", dtnEndpointSchemeName, e.Ssp)
}

// MarshalCbor writes this DtnEndpoint's CBOR representation. The dtn:none sentinel is written as the
// unsigned integer 0, per RFC 9171 4.2.5.1.1; every other SSP is written as a text string.
func (e DtnEndpoint) MarshalCbor(w io.Writer) error {
	if e.Ssp == dtnEndpointDtnNoneSsp {
		return cboring.WriteUInt(0, w)
	}
	return cboring.WriteTextString(e.Ssp, w)
}

// UnmarshalCbor reads a CBOR representation for a DtnEndpoint. The SSP is either an unsigned integer,
// meaning the dtn:none sentinel, or a text string.
func (e *DtnEndpoint) UnmarshalCbor(r io.Reader) error {
	var head [1]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return err
	}

	// Put the initial byte back in front of r, so cboring reads the whole item without consuming anything after it.
	br := io.MultiReader(bytes.NewReader(head[:]), r)

	// CBOR major type is encoded in the upper three bits of the initial byte; 0 is an unsigned
	// integer (the dtn:none sentinel), 3 is a text string (every other SSP).
	switch head[0] >> 5 {
	case 0:
		if _, err := cboring.ReadUInt(br); err != nil {
			return err
		}
		e.Ssp = dtnEndpointDtnNoneSsp

	case 3:
		ssp, err := cboring.ReadTextString(br)
		if err != nil {
			return err
		}
		e.Ssp = ssp

	default:
		return fmt.Errorf("dtn endpoint's SSP must be an unsigned integer or a text string")
	}

	return nil
}
