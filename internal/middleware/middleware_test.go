package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/auth"
)

type ping struct{}

func echoMember(ctx context.Context, _ connect.AnyRequest) (connect.AnyResponse, error) {
	if GetMemberID(ctx) == "" {
		return nil, errors.New("no member")
	}
	return connect.NewResponse(&ping{}), nil
}

func TestRequireAuth(t *testing.T) {
	m := auth.NewJWTManager("secret", time.Hour)
	token, err := m.Generate("alice", "g1")
	if err != nil {
		t.Fatal(err)
	}
	handler := RequireAuth(m)(echoMember)

	tests := []struct {
		name     string
		header   string
		wantCode connect.Code
	}{
		{"valid", "Bearer " + token, 0},
		{"missing", "", connect.CodeUnauthenticated},
		{"not bearer", "Basic " + token, connect.CodeUnauthenticated},
		{"bad token", "Bearer nope", connect.CodeUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := connect.NewRequest(&ping{})
			if tt.header != "" {
				req.Header().Set("Authorization", tt.header)
			}
			_, err := handler(context.Background(), req)
			if tt.wantCode == 0 {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if connect.CodeOf(err) != tt.wantCode {
				t.Errorf("code = %v, want %v", connect.CodeOf(err), tt.wantCode)
			}
		})
	}
}

func TestLoggingInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	failing := func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("over payment"))
	}

	ctx := WithClaims(context.Background(), &auth.Claims{MemberID: "bob"})
	_, _ = LoggingInterceptor(logger)(failing)(ctx, connect.NewRequest(&ping{}))

	out := buf.String()
	for _, want := range []string{"level=WARN", "code=failed_precondition", "member_id=bob"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}
