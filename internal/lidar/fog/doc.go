// Package fog models atmospheric fog for the ray-cast LiDAR.
//
// A fog density in [0,1] is mapped to a Meteorological Optical Range (MOR)
// through a step-size table: the table's step size (the mean free path of
// the fog simulation, in metres) is interpolated piecewise-linearly over
// density and converted with the Koschmieder relation
//
//	sigma = 1 / stepSize
//	MOR   = ln(20) / sigma
//
// Returned intensities are attenuated along the two-way path with
//
//	I' = I * exp(-K * d / MOR),  K = 2 * ln(20)
//
// which equals exp(-2 * sigma * d). A density of zero means no fog and maps
// to NoFogMOR.
package fog
