package protocol

import "math"

func float32bits(f float32) uint32  { return math.Float32bits(f) }
func bitsToFloat32(b uint32) float32 { return math.Float32frombits(b) }

func int32ToBits(v int32) uint32  { return uint32(v) }
func bitsToInt32(b uint32) int32  { return int32(b) }
