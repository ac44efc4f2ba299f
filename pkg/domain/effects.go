package domain

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// EffectType はプリセット効果の識別子です。
type EffectType string

const (
	EffectHighQuality   EffectType = "HIGH_QUALITY"
	EffectUpscale       EffectType = "UPSCALE"
	EffectEnhance       EffectType = "ENHANCE"
	EffectEnhanceFace   EffectType = "ENHANCE_FACE"
	EffectCinematic     EffectType = "CINEMATIC"
	EffectVintage       EffectType = "VINTAGE"
	EffectBlackAndWhite EffectType = "BLACK_AND_WHITE"
	EffectPopArt        EffectType = "POP_ART"
	EffectNeonPunk      EffectType = "NEON_PUNK"
	EffectWatercolor    EffectType = "WATERCOLOR"
	EffectDrawing       EffectType = "DRAWING"
	EffectOilPainting   EffectType = "OIL_PAINTING"
	EffectRemoveBG      EffectType = "REMOVE_BG"
	EffectAspect1x1     EffectType = "ASPECT_1_1"
	EffectAspect4x5     EffectType = "ASPECT_4_5"
	EffectAspect9x16    EffectType = "ASPECT_9_16"
	EffectAspect16x9    EffectType = "ASPECT_16_9"
	EffectAspect4x3     EffectType = "ASPECT_4_3"
)

// maxHistoryLabelLength を超える結合ラベルは "<n> Effects" に置き換えます。
const maxHistoryLabelLength = 25

// EditEffect は UI に並ぶプリセット効果です。
type EditEffect struct {
	Type   EffectType `yaml:"type"`
	Label  string     `yaml:"label"`
	Prompt string     `yaml:"prompt"`
}

// EditEffects は画質・スタイル系のプリセットです。
var EditEffects = []EditEffect{
	{EffectHighQuality, "Make High Quality", "Analyze this image and significantly enhance its overall quality. Improve resolution, sharpness, color balance, and lighting to make it look like it was taken with a professional high-end camera. Remove any noise or artifacts."},
	{EffectUpscale, "Upscale 2x", "Upscale this image to twice its original resolution. Increase details and sharpness while ensuring the result looks natural and free of artifacts."},
	{EffectEnhance, "Auto Enhance", "Automatically enhance this image. Adjust brightness, contrast, saturation, and sharpness to make the photo more vibrant and visually appealing. Correct any color cast issues."},
	{EffectEnhanceFace, "Enhance Face", "Enhance the human faces in this photo. Subtly improve skin texture, brighten eyes, and enhance facial details for a clear and flattering portrait, while keeping a completely natural look."},
	{EffectCinematic, "Cinematic Look", "Apply a cinematic color grade to this image. Add teal and orange tones, increase contrast slightly, and add a subtle vignette to give it a dramatic, movie-like feel."},
	{EffectVintage, "Vintage Effect", "Give this image a vintage, retro look. Apply a faded color palette, add a subtle grain, and slightly decrease contrast to simulate the appearance of an old photograph."},
	{EffectBlackAndWhite, "Black & White", "Convert this image to a high-contrast, dramatic black and white photograph. Emphasize textures and shadows for a powerful monochrome look."},
	{EffectPopArt, "Pop Art", "Transform this image into a vibrant, colorful Pop Art style inspired by Andy Warhol. Use bold, saturated colors and strong outlines."},
	{EffectNeonPunk, "Neon Punk", "Give this image a futuristic, neon-punk aesthetic. Add glowing neon highlights, cool blue and magenta tones, and a gritty, high-tech feel."},
	{EffectWatercolor, "Watercolor", "Convert this image into a soft and delicate watercolor painting. Blend colors smoothly and create a painterly texture with visible brush strokes."},
	{EffectDrawing, "Pencil Drawing", "Convert this image into a detailed monochrome pencil sketch. Emphasize lines, shading, and texture to create a realistic hand-drawn look."},
	{EffectOilPainting, "Oil Painting", "Transform this image into a classic oil painting. Use rich colors, visible impasto brushstrokes, and a textured canvas effect."},
	{EffectRemoveBG, "Remove BG", "Identify the main subject in this image and completely remove the background, replacing it with a transparent one. The edges of the subject should be clean and precise."},
}

// AspectRatioEffects はアスペクト比変更のプリセットです。
var AspectRatioEffects = []EditEffect{
	{EffectAspect1x1, "Square (1:1)", aspectPrompt("1:1 (a perfect square)")},
	{EffectAspect4x5, "Portrait (4:5)", aspectPrompt("4:5 (a vertical portrait)")},
	{EffectAspect9x16, "Story (9:16)", aspectPrompt("9:16 (a vertical story format)")},
	{EffectAspect16x9, "Widescreen (16:9)", aspectPrompt("16:9 (a widescreen format)")},
	{EffectAspect4x3, "Classic (4:3)", aspectPrompt("4:3 (a classic photo format)")},
}

func aspectPrompt(ratio string) string {
	return "Change the aspect ratio of this image to " + ratio + ". Do not crop the main subject. Intelligently fill any new space to preserve the original content."
}

// AllEffects はすべてのプリセットを返します。
func AllEffects() []EditEffect {
	return append(append([]EditEffect{}, EditEffects...), AspectRatioEffects...)
}

// FindEffect は種別名（大文字小文字は区別しない）からプリセットを探します。
func FindEffect(name string) (EditEffect, bool) {
	want := EffectType(strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
	return lo.Find(AllEffects(), func(e EditEffect) bool {
		return e.Type == want
	})
}

// CombinePrompt は選択された効果の指示文を ". " で連結します。
func CombinePrompt(effects []EditEffect) string {
	return strings.Join(lo.Map(effects, func(e EditEffect, _ int) string {
		return e.Prompt
	}), ". ")
}

// HistoryLabel は履歴に表示するラベルを作ります。長すぎる場合は件数表示にします。
func HistoryLabel(effects []EditEffect) string {
	label := strings.Join(lo.Map(effects, func(e EditEffect, _ int) string {
		return e.Label
	}), " & ")
	if len(label) > maxHistoryLabelLength {
		return fmt.Sprintf("%d Effects", len(effects))
	}
	return label
}
