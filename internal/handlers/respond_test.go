package handlers

import (
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/booking"
	"github.com/randevubu/randevubu.server-sub006/libs/auth"
)

func TestWriteBookingError_StatusMapping(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	cases := []struct {
		kind booking.Kind
		want int
	}{
		{booking.KindPolicyViolation, 422},
		{booking.KindSlotTaken, 409},
		{booking.KindNotFound, 404},
		{booking.KindCustomerBanned, 403},
		{booking.KindAccessDenied, 403},
		{booking.KindBusinessClosed, 422},
		{booking.KindIncompleteProfile, 422},
		{booking.KindTransient, 503},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeBookingError(rec, logger, &booking.Error{Kind: tc.kind, Message: "x"})
		if rec.Code != tc.want {
			t.Fatalf("kind %s -> %d, want %d", tc.kind, rec.Code, tc.want)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type = %q", ct)
		}
	}

	rec := httptest.NewRecorder()
	writeBookingError(rec, logger, errors.New("boom"))
	if rec.Code != 500 {
		t.Fatalf("untyped error -> %d, want 500", rec.Code)
	}
}

func TestBearerClaims(t *testing.T) {
	const secret = "test-secret"
	token, err := auth.SignHS256(auth.Claims{
		Sub:  "cust-1",
		Role: "customer",
		Exp:  time.Now().Add(time.Hour).Unix(),
		Iat:  time.Now().Unix(),
	}, secret)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	r := httptest.NewRequest("GET", "/appointments", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	claims, err := bearerClaims(r, secret)
	if err != nil {
		t.Fatalf("bearerClaims: %v", err)
	}
	if claims.Sub != "cust-1" || claims.Role != "customer" {
		t.Fatalf("claims = %+v", claims)
	}

	r = httptest.NewRequest("GET", "/appointments", nil)
	if _, err := bearerClaims(r, secret); err == nil {
		t.Fatal("missing header must fail")
	}

	r = httptest.NewRequest("GET", "/appointments", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	if _, err := bearerClaims(r, "other-secret"); err == nil {
		t.Fatal("wrong secret must fail")
	}
}
