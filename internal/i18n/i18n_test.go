package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLanguage(context.Background(), lang)
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang, id, want string
	}{
		{"en", "ErrStudentNameRequired", "Please enter the student's name."},
		{"vi", "ErrStudentNameRequired", "Vui lòng nhập tên học sinh."},
		{"en", "ResultCorrect", "Correct"},
		{"vi", "ResultCorrect", "Đúng"},
		// Unknown languages fall back to the default.
		{"fr", "ResultCorrect", "Correct"},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			ctx := initLang(t, tt.lang)
			if got := T(ctx, tt.id); got != tt.want {
				t.Errorf("T(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "ScanFlagged", 1); got != "1 submission flagged." {
		t.Errorf("Tp(ScanFlagged, 1) = %q", got)
	}
	if got := Tp(ctx, "ScanFlagged", 4); got != "4 submissions flagged." {
		t.Errorf("Tp(ScanFlagged, 4) = %q", got)
	}

	vi := WithLanguage(context.Background(), "vi")
	if got := Tp(vi, "ScanFlagged", 4); got != "Đã đánh dấu 4 bài nộp." {
		t.Errorf("Tp(ScanFlagged, 4) vi = %q", got)
	}
}

func TestIntegrityWarning(t *testing.T) {
	ctx := initLang(t, "en")
	got := IntegrityWarning(ctx)("Binh")
	if got != "This work is nearly identical to the submission of Binh." {
		t.Errorf("IntegrityWarning = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestInitInvalidLanguage(t *testing.T) {
	if err := Init("not a language!"); err == nil {
		t.Error("expected error for invalid language tag")
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")
	langs := Languages()
	if !slices.Contains(langs, "en") || !slices.Contains(langs, "vi") {
		t.Errorf("Languages() = %v, want en and vi", langs)
	}
}

func TestMiddleware(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ResultIncorrect")
	}))

	tests := []struct {
		name   string
		url    string
		accept string
		want   string
	}{
		{"fallback", "/", "", "Incorrect"},
		{"accept header", "/", "vi-VN,vi;q=0.9", "Sai"},
		{"query wins", "/?lang=en", "vi", "Incorrect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
