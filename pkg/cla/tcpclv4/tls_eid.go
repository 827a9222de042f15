// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcpclv4

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// subjectAltNameOID is the X.509 Subject Alternative Name extension, RFC 5280 §4.2.1.6.
var subjectAltNameOID = asn1.ObjectIdentifier{2, 5, 29, 17}

// bundleEIDOtherNameOID is the id-on-bundleEID otherName, RFC 9174 §6 / RFC 9468.
var bundleEIDOtherNameOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 8, 11}

// generalNameOtherName is the minimal ASN.1 shape this module cares about within a SAN's GeneralNames SEQUENCE; a
// GeneralName is itself a CHOICE, so this only matches the otherName [0] alternative and leaves everything else to
// the raw bytes untouched.
type generalNameOtherName struct {
	TypeID asn1.ObjectIdentifier
	Value  asn1.RawValue `asn1:"explicit,tag:0"`
}

// bundleEIDFromCertificate extracts the bundle node ID carried in a peer certificate's Subject Alternative Name as an
// otherName with the id-on-bundleEID OID, as required by a TCPCL v4 TLS handshake with mutual authentication.
func bundleEIDFromCertificate(cert *x509.Certificate) (eid bpv7.EndpointID, err error) {
	var sanExt pkix.Extension
	var found bool

	for _, ext := range cert.Extensions {
		if ext.Id.Equal(subjectAltNameOID) {
			sanExt = ext
			found = true
			break
		}
	}
	if !found {
		err = fmt.Errorf("peer certificate has no Subject Alternative Name extension")
		return
	}

	var rawNames []asn1.RawValue
	if _, unmarshalErr := asn1.Unmarshal(sanExt.Value, &rawNames); unmarshalErr != nil {
		err = fmt.Errorf("parsing Subject Alternative Name failed: %w", unmarshalErr)
		return
	}

	for _, rawName := range rawNames {
		// otherName is GeneralName's CHOICE tag [0], constructed.
		if rawName.Class != asn1.ClassContextSpecific || rawName.Tag != 0 {
			continue
		}

		var other generalNameOtherName
		if _, unmarshalErr := asn1.UnmarshalWithParams(rawName.FullBytes, &other, "tag:0"); unmarshalErr != nil {
			continue
		}
		if !other.TypeID.Equal(bundleEIDOtherNameOID) {
			continue
		}

		var uri string
		if _, unmarshalErr := asn1.Unmarshal(other.Value.Bytes, &uri); unmarshalErr != nil {
			err = fmt.Errorf("parsing bundleEID otherName value failed: %w", unmarshalErr)
			return
		}

		eid, err = bpv7.NewEndpointID(uri)
		return
	}

	err = fmt.Errorf("peer certificate carries no id-on-bundleEID otherName")
	return
}
