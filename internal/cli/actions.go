package cli

// Indirection layer to allow stubbing in tests

var (
	fnBuild        = runBuild
	fnProbe        = probeProfile
	fnPlan         = planBuild
	fnToolchain    = emitToolchain
	fnPackagesList = listPackages
	fnServe        = serveAPI
)
