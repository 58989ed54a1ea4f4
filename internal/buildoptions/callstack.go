package buildoptions

// CallStackHeightLimit is the default maximum count of nested function calls in one invocation.
const CallStackHeightLimit = 2000
