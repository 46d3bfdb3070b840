// Package acutance provides the image sharpness metric used as a focus proxy.
//
// The score of an image is the mean local intensity range after smoothing:
//
//   - Median: 3x3 cross-shaped median filter, edges replicated
//   - Gradient: per pixel, max minus min over a disk-shaped neighbourhood
//     (pixels outside the image are ignored)
//   - Score: arithmetic mean of the gradient image
//
// Higher scores indicate sharper images. The metric is deterministic for
// identical inputs.
package acutance
