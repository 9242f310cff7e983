// Package theme resolves the colour scheme of the terminal screen.
//
// A Bundle is a plain, comparable description of the palette. Render turns
// it into lipgloss styles bound to a renderer, so every SSH session styles
// against its own client's colour profile:
//
//	bundle, err := theme.Resolve(theme.VariantAmber, pty.Term)
//	if err != nil {
//		return err
//	}
//	styles := bundle.Render(bm.MakeRenderer(sess))
//	screen := styles.Screen.Render(text)
package theme
