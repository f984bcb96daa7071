package cta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

func strPtr(s string) *string { return &s }

func multiChoice() domain.MultiChoiceCTA {
	return domain.MultiChoiceCTA{
		Title:      "Pick your freebie",
		Subheading: "All free",
		Prompt:     "Choose one",
		ImageURL:   "https://img.test/cta.png",
		Options: []domain.CTAOption{
			domain.VideoDirectOption{ID: "direct", Label: "Intro", VideoURL: "https://video.test/intro", Title: "Intro"},
			domain.VideoSubChoiceOption{
				ID:    "inherit",
				Label: "Series",
				Choices: []domain.VideoChoice{
					{Label: "Ep 1", VideoURL: "https://video.test/e1", Title: "Episode 1"},
					{Label: "Ep 2", VideoURL: "https://video.test/e2", Title: "Episode 2", Subtitle: "Second", Button: &domain.Button{Label: "More", URL: "https://more.test"}},
				},
			},
			domain.VideoSubChoiceOption{
				ID:         "override",
				Label:      "Custom",
				Title:      strPtr("Own title"),
				Subheading: strPtr(""),
				Prompt:     "Own prompt",
				Choices:    []domain.VideoChoice{{Label: "Only", VideoURL: "https://video.test/only"}},
			},
			domain.VideoSubChoiceOption{ID: "empty", Label: "Broken"},
			domain.DiscountOption{ID: "disc", Label: "Discount", Title: "10% off", LinkURL: "https://shop.test", Code: "SAVE10"},
			domain.WebhookOption{ID: "hook", Label: "Call me", WebhookTag: "callback", WebhookURL: "https://hooks.test/cb", ThankYouMessage: "Talk soon"},
			domain.LinkOption{ID: "link", Label: "Site", URL: "https://site.test", OpenInNewTab: true},
		},
	}
}

func TestResolverImmediateCTAs(t *testing.T) {
	tests := []struct {
		name string
		cta  domain.CTA
		want View
	}{
		{"nil", nil, ThankYouView{Message: "Default thanks"}},
		{"thank you with message", domain.ThankYouCTA{Message: "Thanks!"}, ThankYouView{Message: "Thanks!"}},
		{"thank you fallback", domain.ThankYouCTA{}, ThankYouView{Message: "Default thanks"}},
		{"link", domain.LinkCTA{Label: "Go", URL: "https://go.test"}, LinkView{Label: "Go", URL: "https://go.test"}},
		{"embed", domain.EmbedCTA{URL: "https://cal.test", Title: "Book"}, EmbedView{URL: "https://cal.test", Title: "Book"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.cta, "Default thanks")
			assert.Equal(t, tt.want, r.Current())
		})
	}
}

func TestResolverSubChoiceFallbacks(t *testing.T) {
	r := NewResolver(multiChoice(), "")

	out, err := r.Select("inherit")
	require.NoError(t, err)
	assert.Equal(t, Picker{
		OptionID:   "inherit",
		Title:      "Pick your freebie",
		Subheading: "All free",
		Prompt:     "Choose one",
		ImageURL:   "https://img.test/cta.png",
		Choices:    multiChoice().Options[1].(domain.VideoSubChoiceOption).Choices,
	}, out.View)

	out, err = r.Select("override")
	require.NoError(t, err)
	p := out.View.(Picker)
	assert.Equal(t, "Own title", p.Title)
	assert.Equal(t, "", p.Subheading, "explicit empty suppresses the parent subheading")
	assert.Equal(t, "Own prompt", p.Prompt)
	assert.Equal(t, "https://img.test/cta.png", p.ImageURL)
}

func TestResolverSubChoiceUsesChoiceOnly(t *testing.T) {
	r := NewResolver(multiChoice(), "")
	_, err := r.Select("inherit")
	require.NoError(t, err)

	out, err := r.SelectSubChoice(1)
	require.NoError(t, err)
	assert.Equal(t, VideoView{
		VideoURL: "https://video.test/e2",
		Title:    "Episode 2",
		Subtitle: "Second",
		Button:   &domain.Button{Label: "More", URL: "https://more.test"},
	}, out.View)

	_, err = r.SelectSubChoice(0)
	assert.ErrorIs(t, err, ErrNoSubChoice)
}

func TestResolverNewSelectionDiscardsPicker(t *testing.T) {
	r := NewResolver(multiChoice(), "")
	_, err := r.Select("inherit")
	require.NoError(t, err)

	_, err = r.Select("direct")
	require.NoError(t, err)
	assert.Equal(t, VideoView{VideoURL: "https://video.test/intro", Title: "Intro"}, r.Current())

	_, err = r.SelectSubChoice(0)
	assert.ErrorIs(t, err, ErrNoSubChoice)
}

func TestResolverOptionKinds(t *testing.T) {
	r := NewResolver(multiChoice(), "")

	out, err := r.Select("disc")
	require.NoError(t, err)
	assert.Equal(t, DiscountView{Title: "10% off", LinkURL: "https://shop.test", LinkLabel: DefaultDiscountLinkLabel, Code: "SAVE10"}, out.View)

	out, err = r.Select("hook")
	require.NoError(t, err)
	assert.Equal(t, &WebhookAction{Tag: "callback", URL: "https://hooks.test/cb"}, out.Webhook)
	assert.Equal(t, ThankYouView{Message: "Talk soon"}, r.Current())

	out, err = r.Select("link")
	require.NoError(t, err)
	assert.Nil(t, out.View)
	assert.Equal(t, &Navigation{URL: "https://site.test", OpenInNewTab: true}, out.Navigate)
	assert.IsType(t, OptionList{}, r.Current())

	_, err = r.Select("empty")
	assert.ErrorIs(t, err, ErrEmptySubChoice)

	_, err = r.Select("nope")
	assert.ErrorIs(t, err, ErrUnknownOption)

	r.Reset()
	list, ok := r.Current().(OptionList)
	require.True(t, ok)
	assert.Len(t, list.Options, 7)
}

func TestFromResult(t *testing.T) {
	assert.Equal(t, ThankYouView{Message: "fb"}, FromResult(nil, "fb"))
	assert.Equal(t, ThankYouView{Message: "fb"}, FromResult(&domain.IntakeResult{Mode: domain.ResultThankYou}, "fb"))
	assert.Equal(t, PendingView{JobID: "j"}, FromResult(&domain.IntakeResult{JobID: "j"}, "fb"))
	assert.Equal(t, EmbedView{HTML: "<p>hi</p>"}, FromResult(&domain.IntakeResult{Mode: domain.ResultEmbed, HTML: "<p>hi</p>"}, "fb"))
}
