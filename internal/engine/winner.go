package engine

// Resolution is the eligibility and bonus winner of a single row.
type Resolution struct {
	IGEligible bool
	TTEligible bool
	Winner     *Platform
}

// ResolveWinner decides which side(s) of a row may earn and which side takes the bonus.
//
// Behavior:
//   - A side is eligible when present and not flagged irrelevant.
//   - Both eligible: the side with more views wins; equal views go to Instagram.
//   - One eligible: that side wins.
//   - None eligible: no winner.
func ResolveWinner(row PairedRow) Resolution {
	res := Resolution{
		IGEligible: row.IG.Eligible(),
		TTEligible: row.TikTok.Eligible(),
	}

	switch {
	case res.IGEligible && res.TTEligible:
		if row.IG.Views >= row.TikTok.Views {
			res.Winner = platformPtr(PlatformInstagram)
		} else {
			res.Winner = platformPtr(PlatformTikTok)
		}
	case res.IGEligible:
		res.Winner = platformPtr(PlatformInstagram)
	case res.TTEligible:
		res.Winner = platformPtr(PlatformTikTok)
	}

	return res
}
