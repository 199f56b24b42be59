package app

import (
	"context"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"citefleurie/pkg/domain"
)

const (
	defaultPhone          = "022 793 03 50"
	maxAnnouncementRunes  = 500
	maxSettingsPhoneRunes = 50
)

// PublicSettings is SiteSettings plus fields derived for display.
type PublicSettings struct {
	domain.SiteSettings
	PhoneLink string `json:"phoneLink"`
}

// DefaultSettings is what visitors see before anything was saved.
func DefaultSettings() domain.SiteSettings {
	return domain.SiteSettings{Phone: defaultPhone}
}

// GetSettings returns the stored settings merged over the defaults.
func (a *App) GetSettings(ctx context.Context) (PublicSettings, error) {
	ctx, cancel := a.bounded(ctx)
	defer cancel()
	stored, ok, err := a.store.GetSiteSettings(ctx)
	if err != nil {
		return PublicSettings{}, storageErr("could not load settings", err)
	}
	settings := DefaultSettings()
	if ok {
		settings = stored
		if strings.TrimSpace(settings.Phone) == "" {
			settings.Phone = defaultPhone
		}
	}
	return PublicSettings{SiteSettings: settings, PhoneLink: PhoneLink(settings.Phone)}, nil
}

// UpdateSettings overwrites the singleton. Last write wins.
func (a *App) UpdateSettings(ctx context.Context, in domain.SiteSettings) (PublicSettings, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	in.AnnouncementText = plainText(in.AnnouncementText)

	if utf8.RuneCountInString(in.Phone) > maxSettingsPhoneRunes {
		return PublicSettings{}, validationf("phone is too long (max %d characters)", maxSettingsPhoneRunes)
	}
	if in.ContactEmail != "" {
		if addr, err := mail.ParseAddress(in.ContactEmail); err != nil || addr.Address != in.ContactEmail {
			return PublicSettings{}, validationf("contactEmail is not a valid address")
		}
	}
	if utf8.RuneCountInString(in.AnnouncementText) > maxAnnouncementRunes {
		return PublicSettings{}, validationf("announcementText is too long (max %d characters)", maxAnnouncementRunes)
	}
	if in.AnnouncementActive && in.AnnouncementText == "" {
		return PublicSettings{}, validationf("an active announcement needs text")
	}
	in.UpdatedAt = a.now().UTC()

	saveCtx, cancel := a.bounded(ctx)
	err := a.store.SaveSiteSettings(saveCtx, in)
	cancel()
	if err != nil {
		return PublicSettings{}, storageErr("could not save settings", err)
	}
	return a.GetSettings(ctx)
}

// PhoneLink turns a local Swiss number such as "022 793 03 50" into a tel: URI.
func PhoneLink(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	number := digits.String()
	if number == "" {
		return ""
	}
	if strings.HasPrefix(strings.TrimSpace(phone), "+") {
		return "tel:+" + number
	}
	return "tel:+41" + strings.TrimPrefix(number, "0")
}

// plainText drops markup from s and collapses whitespace.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	var buf strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(buf.String()), " ")
		case html.StartTagToken:
			if name, _ := tokenizer.TagName(); isRawTextTag(string(name)) {
				skip++
			}
			buf.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := tokenizer.TagName(); isRawTextTag(string(name)) && skip > 0 {
				skip--
			}
			buf.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				buf.Write(tokenizer.Text())
			}
		}
	}
}

func isRawTextTag(name string) bool {
	return name == "script" || name == "style"
}
