package conversation

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/agent-dash/internal/domain"
)

const welcomeText = `Hello! I'm Agent Dash, your assistant for creating interactive dashboards.

I'll help you turn your data into a working dashboard in a few steps:

1. **Upload your data files** (CSV, JSON, Excel, PowerPoint or SQL, max %d files)
2. **Choose your data approach** (all data or key insights only)
3. **Describe your desired design** (layout, style, features)
4. **Get your custom dashboard** with a live preview

Let's start by uploading your data files. What kind of dashboard are you looking to create today?`

const (
	analyzingText      = "Analyzing your data files..."
	analysisFailedText = "Sorry, I encountered an error analyzing your data. Please try uploading your files again."

	scopeAllText      = "Perfect! I'll use all your data to create a comprehensive dashboard."
	scopeInsightsText = "Excellent choice! I'll focus on the key insights for a streamlined dashboard."

	designPromptText = `Now, let's design your dashboard! Please describe how you'd like it to look and what features you want:

• **Layout**: Do you prefer a single page or multiple sections?
• **Style**: Modern, minimal, colorful, professional?
• **Key features**: Charts, tables, filters, KPIs?
• **Focus areas**: What's most important to highlight?

For example: "Create a modern, professional dashboard with revenue charts, customer analytics, and interactive filters in a clean layout."`

	generatingText        = "Perfect! Let me create your custom dashboard..."
	generationFailedText  = "I encountered an error generating your dashboard. Please try describing your design requirements again."
	generatedText         = "Your dashboard is ready! You can see the live preview on the right. Click any element in the preview to change just that part, or describe a change to the whole dashboard."
	generatedFallbackText = "I couldn't build a dashboard that matched your description, so I created a standard overview from your data analysis instead. You can describe changes to refine it."

	revisingText     = "Let me modify your dashboard..."
	reviseFailedText = "I encountered an error modifying your dashboard. Please try describing your changes differently or be more specific about what you'd like to modify."
	editFailedText   = "I couldn't update `%s`. The dashboard was left unchanged. Select the element again and try a different description."
	selectionText    = "You selected `%s`. How would you like to change it?"
	editingText      = "Updating `%s`..."

	uploadReminderText = "Please upload your data files using the upload area above, then I can help you create your dashboard!"
	scopeReminderText  = "Please choose whether to use all your data or only the key insights before we design the dashboard."
	busyText           = "I'm still working on your dashboard. I'll be with you in a moment."

	exportedText    = "Dashboard downloaded successfully! You can now use it in any web browser or integrate it into your projects."
	savedText       = "Dashboard saved as %q."
	saveFailedText  = "I couldn't save your dashboard: %v"
	loadedText      = "Loaded %q. Click any element in the preview to change it."
	loadFailedText  = "I couldn't load that dashboard: %v"
	interruptedText = "This request was interrupted before it finished. Please try again."
)

func welcome(maxFiles int) string {
	return fmt.Sprintf(welcomeText, maxFiles)
}

func analysisSummary(fileCount int, a domain.DataAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Great! I've analyzed your %d file(s). Here's what I found:\n\n", fileCount)
	fmt.Fprintf(&b, "**Data Summary**: %s\n", a.Summary)
	b.WriteString("**Key Insights**:\n")
	for _, insight := range a.KeyInsights {
		fmt.Fprintf(&b, "• %s\n", insight)
	}
	b.WriteString("\nNow, would you like to use all your data or focus on the most important insights I've identified?")
	return b.String()
}

func editedText(selector, request string) string {
	return fmt.Sprintf("Updated `%s`: %s\n\nThe updated dashboard is now visible in the preview panel.", selector, request)
}

func revisedText(request string) string {
	return fmt.Sprintf("Dashboard updated successfully! I've made the following changes based on your request:\n\n%s\n\nThe updated dashboard is now visible in the preview panel.", request)
}

func unavailableText(reason string) string {
	return "Dashboard generation is not available right now: " + reason +
		"\n\nSet the missing configuration and restart the server, then start a new session."
}
