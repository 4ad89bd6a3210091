package email

import (
	"strconv"
	"strings"
)

type Content struct {
	Subject string
	Text    string
	HTML    string
}

// VerificationEmail carries the raw email-verification link. The token in
// the link is the only unhashed copy that ever leaves the server.
func VerificationEmail(link string, hours int) Content {
	repl := strings.NewReplacer("{link}", link, "{hours}", itoa(hours))
	return Content{
		Subject: "Verify your email",
		Text: repl.Replace("Verify your email address: {link}\n" +
			"The link expires in {hours} hour(s).\n" +
			"If you did not create an account, you can ignore this email."),
		HTML: repl.Replace("<p>Welcome to CampusNet!</p>" +
			"<p>Click the link below to verify your email address.</p>" +
			"<p><a href=\"{link}\">Verify email</a></p>" +
			"<p>The link expires in {hours} hour(s).</p>" +
			"<p>If you did not create an account, you can ignore this email.</p>"),
	}
}

func PasswordResetEmail(link string, hours int) Content {
	repl := strings.NewReplacer("{link}", link, "{hours}", itoa(hours))
	return Content{
		Subject: "Reset your password",
		Text: repl.Replace("Reset your password: {link}\n" +
			"The link expires in {hours} hour(s).\n" +
			"If you did not request this, ignore this email."),
		HTML: repl.Replace("<p>Password reset</p>" +
			"<p>Click the link to reset your password.</p>" +
			"<p><a href=\"{link}\">Reset password</a></p>" +
			"<p>The link expires in {hours} hour(s).</p>" +
			"<p>If you did not request this, ignore this email.</p>"),
	}
}

// OAuthNoticeEmail goes to accounts that request a password reset but sign
// in through Google and have no password to reset.
func OAuthNoticeEmail() Content {
	return Content{
		Subject: "Account uses Google sign-in",
		Text: "This account signs in with Google and has no password to reset.\n" +
			"Please use the \"Sign in with Google\" button to access your account.",
		HTML: "<p>This account signs in with Google and has no password to reset.</p>" +
			"<p>Please use the &quot;Sign in with Google&quot; button to access your account.</p>",
	}
}

func itoa(n int) string {
	if n < 0 {
		n = 0
	}
	return strconv.Itoa(n)
}
