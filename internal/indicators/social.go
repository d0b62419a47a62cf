package indicators

// SocialScore rates a social profile 0-100 from audience size, the
// follower/following ratio, activity, and verification.
func SocialScore(followers, following, tweets int, verified bool) float64 {
	var score float64

	switch {
	case followers >= 100000:
		score += 40
	case followers >= 50000:
		score += 35
	case followers >= 10000:
		score += 30
	case followers >= 5000:
		score += 25
	case followers >= 1000:
		score += 15
	case followers >= 100:
		score += 5
	}

	if following > 0 {
		switch ratio := float64(followers) / float64(following); {
		case ratio >= 10:
			score += 20
		case ratio >= 3:
			score += 15
		case ratio >= 1:
			score += 10
		default:
			score += 5
		}
	}

	switch {
	case tweets >= 1000:
		score += 20
	case tweets >= 500:
		score += 15
	case tweets >= 100:
		score += 10
	case tweets >= 10:
		score += 5
	}

	if verified {
		score += 20
	}

	return clamp(score, 0, 100)
}
