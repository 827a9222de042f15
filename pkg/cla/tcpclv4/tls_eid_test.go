// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcpclv4

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// mustMarshalBundleEIDSAN builds a Subject Alternative Name extension value carrying a single otherName with the
// id-on-bundleEID OID, as RFC 9174 §6 requires for TCPCL v4 mutual authentication.
func mustMarshalBundleEIDSAN(t *testing.T, uri string) []byte {
	uriValue, err := asn1.Marshal(uri)
	if err != nil {
		t.Fatal(err)
	}

	// asn1.RawValue.FullBytes is emitted verbatim on Marshal, bypassing any "explicit,tag:0" struct tag on this
	// field, so the context-specific [0] EXPLICIT wrapper required around OtherName's value has to be built by hand.
	if len(uriValue) >= 128 {
		t.Fatal("test URI too long for a single-byte ASN.1 length")
	}
	explicitValue := append([]byte{0xA0, byte(len(uriValue))}, uriValue...)

	other := generalNameOtherName{
		TypeID: bundleEIDOtherNameOID,
		Value:  asn1.RawValue{FullBytes: explicitValue},
	}
	otherBytes, err := asn1.MarshalWithParams(other, "tag:0")
	if err != nil {
		t.Fatal(err)
	}

	sanBytes, err := asn1.Marshal([]asn1.RawValue{{FullBytes: otherBytes}})
	if err != nil {
		t.Fatal(err)
	}

	return sanBytes
}

func mustSelfSignedCertWithSAN(t *testing.T, sanValue []byte) *x509.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "tcpclv4-test"},
	}
	if sanValue != nil {
		template.ExtraExtensions = []pkix.Extension{
			{Id: subjectAltNameOID, Value: sanValue},
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatal(err)
	}

	return cert
}

func TestBundleEIDFromCertificate(t *testing.T) {
	san := mustMarshalBundleEIDSAN(t, "dtn://peer/")
	cert := mustSelfSignedCertWithSAN(t, san)

	eid, err := bundleEIDFromCertificate(cert)
	if err != nil {
		t.Fatal(err)
	}

	if want := bpv7.MustNewEndpointID("dtn://peer/"); eid != want {
		t.Fatalf("expected %v, got %v", want, eid)
	}
}

func TestBundleEIDFromCertificateMissingSAN(t *testing.T) {
	cert := mustSelfSignedCertWithSAN(t, nil)

	if _, err := bundleEIDFromCertificate(cert); err == nil {
		t.Fatal("expected an error for a certificate without a Subject Alternative Name")
	}
}
