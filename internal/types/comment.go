package types

import (
	"time"

	"github.com/google/uuid"
)

// Platform is one of the supported social networks.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformReddit    Platform = "reddit"
	PlatformYouTube   Platform = "youtube"
)

// AllPlatforms lists every Platform. Lookups below must cover each entry.
var AllPlatforms = []Platform{
	PlatformTwitter,
	PlatformLinkedIn,
	PlatformFacebook,
	PlatformInstagram,
	PlatformReddit,
	PlatformYouTube,
}

func (p Platform) Valid() bool {
	for _, known := range AllPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// DefaultMaxLength is the target comment length when the request omits one.
func (p Platform) DefaultMaxLength() int {
	switch p {
	case PlatformTwitter:
		return 280
	case PlatformLinkedIn:
		return 1250
	case PlatformFacebook:
		return 500
	case PlatformInstagram:
		return 300
	case PlatformReddit:
		return 1000
	case PlatformYouTube:
		return 500
	}
	return 0
}

// Guideline is the platform specific formatting instruction for the prompt.
func (p Platform) Guideline() string {
	switch p {
	case PlatformTwitter:
		return "Keep it punchy and conversational. Never exceed 280 characters. One or two relevant hashtags at most, no thread numbering."
	case PlatformLinkedIn:
		return "Use a professional register. Add a concrete insight or experience, avoid slang, no more than one emoji."
	case PlatformFacebook:
		return "Warm and personal, written like a friend replying. Short paragraphs, emojis are fine in moderation."
	case PlatformInstagram:
		return "Short, visual and upbeat. Reference the post's vibe, up to three emojis, hashtags only if they add something."
	case PlatformReddit:
		return "Write like a genuine community member. No marketing tone, no hashtags, no emojis. Add substance or a thoughtful question."
	case PlatformYouTube:
		return "React to the video content directly. Mention a specific moment or idea, keep it friendly and easy to skim."
	}
	return ""
}

// Tone is the voice the generated comment should use.
type Tone string

const (
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneEnthusiastic Tone = "enthusiastic"
	ToneThoughtful   Tone = "thoughtful"
	ToneHumorous     Tone = "humorous"
	ToneGenZ         Tone = "gen-z"
	ToneThanks       Tone = "thanks"
)

var AllTones = []Tone{
	ToneFriendly,
	ToneProfessional,
	ToneCasual,
	ToneEnthusiastic,
	ToneThoughtful,
	ToneHumorous,
	ToneGenZ,
	ToneThanks,
}

func (t Tone) Valid() bool {
	for _, known := range AllTones {
		if t == known {
			return true
		}
	}
	return false
}

// Instruction maps a tone to a short behavioural instruction for the model.
func (t Tone) Instruction() string {
	switch t {
	case ToneFriendly:
		return "Be warm, approachable and supportive."
	case ToneProfessional:
		return "Be polished and respectful, focus on substance and credibility."
	case ToneCasual:
		return "Sound relaxed and natural, like chatting with a peer."
	case ToneEnthusiastic:
		return "Show genuine excitement and energy without sounding fake."
	case ToneThoughtful:
		return "Reflect on the idea, add nuance or a considered question."
	case ToneHumorous:
		return "Be witty and light-hearted while staying kind and on topic."
	case ToneGenZ:
		return "Use current Gen Z internet slang naturally, keep it short and playful."
	case ToneThanks:
		return "Express sincere gratitude for the post and mention what was valuable."
	}
	return ""
}

// GeneratedComment mirrors a row of generated_comments.
type GeneratedComment struct {
	ID             int64     `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	OriginalPost   string    `json:"original_post"`
	Platform       Platform  `json:"platform"`
	Tone           Tone      `json:"tone"`
	CommentText    string    `json:"comment_text"`
	CharacterCount int       `json:"character_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// GenerateRequest is the body of a generation call.
type GenerateRequest struct {
	OriginalPost string   `json:"originalPost" validate:"required,max=10000"`
	Platform     Platform `json:"platform" validate:"required"`
	Tone         Tone     `json:"tone" validate:"required"`
	MaxLength    *int     `json:"maxLength,omitempty" validate:"omitempty,min=50,max=10000"`
}

// CommentSuggestion is one entry of a generation response.
type CommentSuggestion struct {
	ID       int64    `json:"id"`
	Text     string   `json:"text"`
	Platform Platform `json:"platform"`
	Length   int      `json:"length"`
}

type GenerateResponse struct {
	Comments []CommentSuggestion `json:"comments"`
}

// Usage reports the caller's daily generation quota.
type Usage struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}
