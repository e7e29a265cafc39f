// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and Lip Gloss styles used by the docchat
terminal UI.

Colors are AdaptiveColor values so they follow the terminal's light or dark
background. NewTheme(true) drops color entirely for NO_COLOR terminals and
dumb pipes; shape indicators such as [X] keep states distinguishable.

# Usage

	theme := styles.NewTheme(cfg.UI.NoColor)
	fmt.Println(theme.UserLabel.Render("You"))
*/
package styles
